package fixture

// ParameterState is the simulated state of one fixture parameter.
type ParameterState struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Target    float64 `json:"target"`
	Speed     float64 `json:"speed"`
	Direction string  `json:"direction"`
	Moving    bool    `json:"moving"`
}

// EffectState describes a running pulse, strobe or rotation.
type EffectState struct {
	Channel   string  `json:"channel"`
	Attribute string  `json:"attribute"`
	Behavior  string  `json:"behavior"`
	Period    float64 `json:"period,omitempty"`
}

// State is a point-in-time snapshot of a fixture.
type State struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Universe   int              `json:"universe"`
	Address    int              `json:"address"`
	Parameters []ParameterState `json:"parameters"`
	Effects    []EffectState    `json:"effects"`
}

// Snapshot returns the current state of every parameter and running effect.
func (f *Fixture) Snapshot() State {
	state := State{
		ID:         f.id,
		Name:       f.name,
		Universe:   f.universe,
		Address:    f.address,
		Parameters: make([]ParameterState, 0, len(f.order)),
		Effects:    []EffectState{},
	}

	for _, key := range f.order {
		p := f.params[key].profile
		state.Parameters = append(state.Parameters, ParameterState{
			Key:       key.String(),
			Value:     p.Value(),
			Target:    p.Target(),
			Speed:     p.Speed(),
			Direction: p.Direction().String(),
			Moving:    p.IsMoving(),
		})
	}

	for _, ch := range f.channels {
		if ch.pulse != nil {
			state.Effects = append(state.Effects, EffectState{
				Channel:   ch.desc.Name,
				Attribute: ch.pulse.attribute,
				Behavior:  ch.pulse.behavior.String(),
				Period:    ch.pulse.gen.Period(),
			})
		}
		if ch.strobe != nil {
			state.Effects = append(state.Effects, EffectState{
				Channel:   ch.desc.Name,
				Attribute: ch.strobe.attribute,
				Behavior:  BehaviorRandomStrobe.String(),
			})
		}
	}
	for _, axis := range []Feature{FeaturePan, FeatureTilt} {
		if rot := f.rotations[axis]; rot != nil && rot.active() {
			state.Effects = append(state.Effects, EffectState{
				Channel:   axis.String(),
				Attribute: rot.attribute,
				Behavior:  BehaviorRotation.String(),
				Period:    rot.gen.Period(),
			})
		}
	}
	return state
}
