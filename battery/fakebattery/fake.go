// Package fakebattery provides an in-memory battery.Adapter double driven by
// scripted scenarios, for tests that exercise the dispatch controller
// without a real Modbus bus. It mirrors the teacher's scheduler_test.go
// pattern of a struct holding canned return values and an injectable error.
package fakebattery

import (
	"context"
	"sync"

	"github.com/devskill-org/bess-bidder/battery"
)

// Fake is a scripted battery.Adapter. Each field is read/written under a
// mutex so it can be safely driven from a test goroutine while the dispatch
// controller's tasks run concurrently.
type Fake struct {
	mu sync.Mutex

	SOC             float64
	Temperature     float64
	DRStatus        bool
	LastDischarge   int
	DischargeWrites []int

	ReadSOCErr      error
	ReadTempErr     error
	ReadDRErr       error
	WriteDREnableErr error
	WriteDischargeErr error

	lastDREnable []bool
}

// New creates a Fake seeded at the given SOC with DR inactive.
func New(initialSOC float64) *Fake {
	return &Fake{SOC: initialSOC, Temperature: battery.DefaultTemperatureC}
}

func (f *Fake) ReadSOC(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadSOCErr != nil {
		return 0, f.ReadSOCErr
	}
	return f.SOC, nil
}

func (f *Fake) ReadTemperatureC(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadTempErr != nil {
		return battery.DefaultTemperatureC, f.ReadTempErr
	}
	return f.Temperature, nil
}

func (f *Fake) ReadDRStatus(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadDRErr != nil {
		return false, f.ReadDRErr
	}
	return f.DRStatus, nil
}

func (f *Fake) WriteDREnable(ctx context.Context, enable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteDREnableErr != nil {
		return f.WriteDREnableErr
	}
	f.DRStatus = enable
	f.lastDREnable = append(f.lastDREnable, enable)
	return nil
}

func (f *Fake) WriteDischargeRate(ctx context.Context, rate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteDischargeErr != nil {
		return f.WriteDischargeErr
	}
	f.LastDischarge = rate
	f.DischargeWrites = append(f.DischargeWrites, rate)
	return nil
}

// SetSOC updates the simulated raw SOC, as if the plant's state changed.
func (f *Fake) SetSOC(soc float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SOC = soc
}

// DREnableHistory returns every value ever written to the DR-enable
// register, oldest first.
func (f *Fake) DREnableHistory() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.lastDREnable))
	copy(out, f.lastDREnable)
	return out
}

var _ battery.Adapter = (*Fake)(nil)
