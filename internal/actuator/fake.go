package actuator

// FakeActuator records Fire calls for test assertions.
type FakeActuator struct {
	// Fires counts successful Fire calls.
	Fires int

	// FireError, if set, will be returned by Fire.
	FireError error

	// OnFire, if set, is called at the start of each Fire.
	OnFire func()
}

// NewFakeActuator creates a FakeActuator.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// Fire records the call.
func (f *FakeActuator) Fire() error {
	if f.OnFire != nil {
		f.OnFire()
	}
	if f.FireError != nil {
		return f.FireError
	}
	f.Fires++
	return nil
}
