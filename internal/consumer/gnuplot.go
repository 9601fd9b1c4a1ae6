package consumer

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/randomizedcoder/toggle-jitter/internal/export"
)

const gnuplotBin = "gnuplot"

// GnuplotAvailable reports whether gnuplot is on PATH.
func GnuplotAvailable() bool {
	_, err := exec.LookPath(gnuplotBin)
	return err == nil
}

// Gnuplot drives a persistent gnuplot window over its stdin.
type Gnuplot struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	w     *bufio.Writer
}

// StartGnuplot launches gnuplot and sends the static plot setup.
func StartGnuplot() (*Gnuplot, error) {
	cmd := exec.Command(gnuplotBin, "-persistent")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("gnuplot: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("gnuplot: start: %w", err)
	}
	g := &Gnuplot{cmd: cmd, stdin: stdin, w: bufio.NewWriter(stdin)}
	err = WritePlotSetup(g.w)
	if err == nil {
		err = g.w.Flush()
	}
	if err != nil {
		_ = g.Close()
		return nil, fmt.Errorf("gnuplot: setup: %w", err)
	}
	return g, nil
}

// Plot redraws the window.
func (g *Gnuplot) Plot(window []export.Measurement, period time.Duration) error {
	if err := WritePlot(g.w, window, period); err != nil {
		return err
	}
	return g.w.Flush()
}

// Close ends the gnuplot session. The window stays open (-persistent).
func (g *Gnuplot) Close() error {
	err := g.stdin.Close()
	if werr := g.cmd.Wait(); err == nil {
		err = werr
	}
	return err
}

// WritePlotSetup writes the static part of the plot script.
func WritePlotSetup(w io.Writer) error {
	_, err := io.WriteString(w, "set terminal qt size 1200,700\n"+
		"set title 'GPIO Toggle Jitter'\n"+
		"set xlabel 'Sample Count'\n"+
		"set ylabel 'Jitter (ns)'\n"+
		"set key outside\n"+
		"set ytics auto\n"+
		"set format y '%.0f'\n")
	return err
}

// WritePlot writes one frame: axis ranges, the max/avg labels, the jitter
// series and a zero reference line.
func WritePlot(w io.Writer, window []export.Measurement, period time.Duration) error {
	if len(window) == 0 {
		return nil
	}
	maxAbs, meanAbs := WindowJitter(window, period)
	lo, hi := yRange(int64(maxAbs))
	xMin, xMax := window[0].Seq, window[len(window)-1].Seq

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "set xrange [%d:%d]\n", xMin, xMax)
	fmt.Fprintf(bw, "set yrange [%d:%d]\n", lo, hi)
	fmt.Fprintf(bw, "unset label 2\nunset label 3\n")
	fmt.Fprintf(bw, "set label 2 'Max: %d ns' at screen 0.90, screen 0.55\n", int64(maxAbs))
	fmt.Fprintf(bw, "set label 3 'Avg: %d ns' at screen 0.90, screen 0.50\n", int64(meanAbs))
	fmt.Fprintf(bw, "plot '-' using 1:2 with linespoints pt 1 title 'Jitter (ns)', '-' using 1:2 with lines title 'Expected (0 ns)'\n")
	for _, m := range window {
		fmt.Fprintf(bw, "%d %d\n", m.Seq, int64(m.Jitter(period)))
	}
	fmt.Fprintf(bw, "e\n%d 0\n%d 0\ne\n", xMin, xMax)
	return bw.Flush()
}

// yRange pads the axis by a tenth of the peak, at least 1µs when the peak
// is below 10ns.
func yRange(maxAbs int64) (lo, hi int64) {
	margin := maxAbs / 10
	if margin == 0 {
		margin = 1000
	}
	return -(maxAbs/10 + margin), maxAbs + margin
}
