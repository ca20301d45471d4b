package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

// SinkInput is one playback stream as reported by pactl.
type SinkInput struct {
	ID      int
	Volume  int
	AppName string
}

// Ducker lowers the volume of other applications while the assistant is
// listening and restores it afterwards. Streams named in keep are left alone.
type Ducker struct {
	keep      []string
	minVolume int

	mu       sync.Mutex
	active   bool
	original map[int]int

	list func(context.Context) ([]SinkInput, error)
	set  func(ctx context.Context, id, percent int) error
}

func NewDucker(keep []string, minVolume int) *Ducker {
	return &Ducker{
		keep:      slices.Clone(keep),
		minVolume: clampVolume(minVolume),
		list:      listSinkInputs,
		set:       setSinkInputVolume,
	}
}

// Duck fades every other stream to factor of its volume over d.
func (d *Ducker) Duck(ctx context.Context, factor float64, dur time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)
	var fades []fade
	for _, s := range streams {
		if slices.Contains(d.keep, s.AppName) {
			continue
		}
		to := int(math.Round(float64(s.Volume) * factor))
		to = max(clampVolume(to), d.minVolume)
		d.original[s.ID] = s.Volume
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: to})
	}

	d.active = true
	return d.run(ctx, fades, dur)
}

// Restore fades ducked streams back to where they were. Streams that appeared
// after Duck are not touched.
func (d *Ducker) Restore(ctx context.Context, dur time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, s := range streams {
		if orig, ok := d.original[s.ID]; ok {
			fades = append(fades, fade{id: s.ID, from: s.Volume, to: orig})
		}
	}

	d.active = false
	d.original = nil
	return d.run(ctx, fades, dur)
}

type fade struct {
	id, from, to int
}

func (d *Ducker) run(ctx context.Context, fades []fade, dur time.Duration) error {
	if len(fades) == 0 {
		return nil
	}

	const step = 10 * time.Millisecond
	steps := max(int(dur/step), 1)

	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := f.from + int(math.Round(float64(f.to-f.from)*frac))
			if err := d.set(ctx, f.id, v); err != nil {
				return fmt.Errorf("set volume of %d: %w", f.id, err)
			}
		}
		if i < steps {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(dur / time.Duration(steps)):
			}
		}
	}
	return nil
}

func listSinkInputs(ctx context.Context) ([]SinkInput, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

// parseSinkInputs reads the output of `pactl list sink-inputs`.
func parseSinkInputs(text string) []SinkInput {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []SinkInput
	for _, block := range blocks[1:] {
		head, body, _ := strings.Cut(block, "\n")
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		s := SinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			switch {
			case strings.HasPrefix(line, "Volume:") && s.Volume == 0:
				if m := percentRe.FindStringSubmatch(line); m != nil {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			case strings.HasPrefix(line, "application.name =") && s.AppName == "":
				_, v, _ := strings.Cut(line, "=")
				s.AppName = strings.Trim(strings.TrimSpace(v), `"`)
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}

func setSinkInputVolume(ctx context.Context, id, percent int) error {
	arg := fmt.Sprintf("%d%%", clampVolume(percent))
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), arg).Run()
}

func clampVolume(v int) int {
	return min(max(v, 0), 150)
}
