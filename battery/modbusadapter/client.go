// Package modbusadapter implements battery.Adapter over an RS-485 Modbus
// RTU link, grounded on the teacher's sigenergy/modbus_client.go: the same
// handler construction (baud/parity/stop-bits/slave-id/timeout), the same
// big-endian register conversion helpers, applied to the register map named
// in spec.md §6 instead of the Sigenergy plant/inverter/charger blocks.
package modbusadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/devskill-org/bess-bidder/battery"
	"github.com/goburrow/modbus"
)

// Register addresses from spec.md §6.
const (
	RegSOC           = 0x208 // read, raw SOC in percent (0-100)
	RegTemperature   = 0x209 // read, 0.1 degC
	RegDischargeRate = 0x210 // write, capacity x 100
	RegDREnable      = 0x220 // read/write, 0 or 1
)

var _ battery.Adapter = (*Client)(nil)

// Client is a Modbus RTU battery adapter.
type Client struct {
	client  modbus.Client
	handler *modbus.RTUClientHandler
}

// NewRTUClient opens an RS-485 connection to the battery's serial device.
func NewRTUClient(device string, baudRate int, slaveID byte, timeout time.Duration) (*Client, error) {
	handler := modbus.NewRTUClientHandler(device)
	handler.BaudRate = baudRate
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.SlaveId = slaveID
	if timeout <= 0 {
		timeout = time.Second
	}
	handler.Timeout = timeout

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("modbusadapter: failed to connect to %s: %w", device, err)
	}

	return &Client{
		client:  modbus.NewClient(handler),
		handler: handler,
	}, nil
}

// Close releases the underlying serial connection.
func (c *Client) Close() error {
	if c.handler != nil {
		return c.handler.Close()
	}
	return nil
}

func bytesToU16(data []byte) uint16 {
	return uint16(data[0])<<8 | uint16(data[1])
}

func bytesToS16(data []byte) int16 {
	return int16(bytesToU16(data))
}

// ReadSOC reads register 0x208 and returns the SOC as a fraction in [0,1].
func (c *Client) ReadSOC(ctx context.Context) (float64, error) {
	data, err := c.client.ReadHoldingRegisters(RegSOC, 1)
	if err != nil {
		return 0, fmt.Errorf("modbusadapter: read SOC register: %w", err)
	}
	percent := float64(bytesToU16(data))
	return percent / 100.0, nil
}

// ReadTemperatureC reads register 0x209 (0.1 degC units) and returns degrees
// Celsius. On a failed read it returns battery.DefaultTemperatureC with the
// error.
func (c *Client) ReadTemperatureC(ctx context.Context) (float64, error) {
	data, err := c.client.ReadHoldingRegisters(RegTemperature, 1)
	if err != nil {
		return battery.DefaultTemperatureC, fmt.Errorf("modbusadapter: read temperature register: %w", err)
	}
	tenths := bytesToS16(data)
	return float64(tenths) / 10.0, nil
}

// ReadDRStatus reads register 0x220.
func (c *Client) ReadDRStatus(ctx context.Context) (bool, error) {
	data, err := c.client.ReadHoldingRegisters(RegDREnable, 1)
	if err != nil {
		return false, fmt.Errorf("modbusadapter: read DR-enable register: %w", err)
	}
	return bytesToU16(data) != 0, nil
}

// WriteDREnable writes register 0x220.
func (c *Client) WriteDREnable(ctx context.Context, enable bool) error {
	var value uint16
	if enable {
		value = 1
	}
	_, err := c.client.WriteSingleRegister(RegDREnable, value)
	if err != nil {
		return fmt.Errorf("modbusadapter: write DR-enable register: %w", err)
	}
	return nil
}

// WriteDischargeRate writes register 0x210. rate is the encoded value
// (capacity x 100) per spec.md §4.6 T2.
func (c *Client) WriteDischargeRate(ctx context.Context, rate int) error {
	_, err := c.client.WriteSingleRegister(RegDischargeRate, u16ToBytesValue(rate))
	if err != nil {
		return fmt.Errorf("modbusadapter: write discharge-rate register: %w", err)
	}
	return nil
}

func u16ToBytesValue(v int) uint16 {
	if v < 0 {
		v = 0
	}
	if v > 0xFFFF {
		v = 0xFFFF
	}
	return uint16(v)
}
