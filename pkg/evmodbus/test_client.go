package evmodbus

// FakePort is a test double implementing the same shape the actor wrapper
// consumes (see internal/core/port.ModbusPort), letting collector/control
// tests run without a real TCP charger, mirroring
// pkg/sunspec_modbus/test_client.go's fake-reader pattern.
type FakePort struct {
	Registers map[RegKey][]uint16
	ReadErr   error
	WriteErr  error
	Written   []FakeWrite
}

type RegKey struct {
	Unit    uint8
	Address uint16
}

type FakeWrite struct {
	Unit    uint8
	Address uint16
	Words   []uint16
}

func NewFakePort() *FakePort {
	return &FakePort{Registers: map[RegKey][]uint16{}}
}

func (f *FakePort) Set(unit uint8, address uint16, words ...uint16) {
	f.Registers[RegKey{unit, address}] = words
}

func (f *FakePort) ReadHolding(unit uint8, address, count uint16) ([]uint16, error) {
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	words, ok := f.Registers[RegKey{unit, address}]
	if !ok {
		return make([]uint16, count), nil
	}
	if uint16(len(words)) < count {
		padded := make([]uint16, count)
		copy(padded, words)
		return padded, nil
	}
	return words[:count], nil
}

func (f *FakePort) WriteMultiple(unit uint8, address uint16, words []uint16) error {
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.Written = append(f.Written, FakeWrite{Unit: unit, Address: address, Words: words})
	f.Registers[RegKey{unit, address}] = words
	return nil
}
