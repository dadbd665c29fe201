// Package battery defines the abstract capability set the dispatch
// controller uses to observe and actuate the battery, per spec.md §4.4 and
// the "Polymorphism over I/O" design note: production code talks to the
// battery over Modbus (see battery/modbusadapter); tests drive an in-memory
// double (see battery/fakebattery).
package battery

import "context"

// Adapter is the abstract interface over the industrial serial bus. Each
// operation may fail; on failure the caller skips state updates for that
// tick rather than propagating a panic or retrying inline (spec.md §7).
type Adapter interface {
	ReadSOC(ctx context.Context) (float64, error)
	ReadTemperatureC(ctx context.Context) (float64, error)
	ReadDRStatus(ctx context.Context) (bool, error)
	WriteDREnable(ctx context.Context, enable bool) error
	WriteDischargeRate(ctx context.Context, rate int) error
}

// DefaultTemperatureC is returned by adapters when a temperature read fails,
// per spec.md §4.4.
const DefaultTemperatureC = 25.0
