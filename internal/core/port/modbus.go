package port

// ModbusPort is the register-level shape the Measurement Collector reads
// the charger through, implemented by *evmodbus.Client in production
// and by *evmodbus.FakePort in tests — grounded on the teacher's
// InverterModbusReader/ACMeterModbusReader interfaces, collapsed to the one
// register-level shape this driver needs.
type ModbusPort interface {
	ReadHolding(unit uint8, address, count uint16) ([]uint16, error)
	WriteMultiple(unit uint8, address uint16, words []uint16) error
}
