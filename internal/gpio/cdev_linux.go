//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// cdevLine is a line requested from the GPIO character device.
type cdevLine struct {
	l *gpiocdev.Line
}

// Open requests offset on chip (e.g. "gpiochip0") as an output, driven low.
func Open(chip string, offset int) (Line, error) {
	if chip == "" {
		return nil, fmt.Errorf("gpio: no chip given, use gpioinfo to find the chip")
	}
	l, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(Low),
		gpiocdev.WithConsumer(Consumer),
	)
	if err != nil {
		return nil, fmt.Errorf("gpio: request %s line %d as output: %w", chip, offset, err)
	}
	return &cdevLine{l: l}, nil
}

func (c *cdevLine) SetValue(value int) error {
	return c.l.SetValue(value)
}

func (c *cdevLine) Close() error {
	return c.l.Close()
}
