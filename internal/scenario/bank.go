package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/doaeval/internal/audio"
	"github.com/himanishpuri/doaeval/pkg/utils"
)

var ErrNoRIR = errors.New("no room impulse response available")

// rirName matches room<room>_deg<angle>.wav, e.g. room2_deg45.wav.
var rirName = regexp.MustCompile(`^room(\d+)_deg(-?\d+(?:\.\d+)?)\.(?i:wav)$`)

// RIR is a two-channel impulse response measured at one source angle.
type RIR struct {
	Room    int
	Degrees float64
	Path    string
	IR      audio.Stereo
}

// Bank holds the impulse responses of every room, sorted by angle.
type Bank struct {
	SampleRate int
	rooms      map[int][]RIR
}

// ParseRIRName extracts the room index and angle from an RIR file name.
func ParseRIRName(name string) (room int, deg float64, ok bool) {
	m := rirName.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, 0, false
	}
	room, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	deg, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	return room, deg, true
}

// LoadBank decodes every RIR file in dir in parallel. Files whose names do
// not follow the room<r>_deg<a>.wav pattern are returned as skipped.
func LoadBank(ctx context.Context, dir string, sampleRate int) (*Bank, []string, error) {
	paths, err := utils.GlobExt(dir, ".wav")
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	bank := &Bank{SampleRate: sampleRate, rooms: make(map[int][]RIR)}
	var (
		mu      sync.Mutex
		skipped []string
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, path := range paths {
		path := path
		room, deg, ok := ParseRIRName(path)
		if !ok {
			skipped = append(skipped, path)
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			clip, err := audio.ReadWAV(path)
			if err != nil {
				return fmt.Errorf("reading RIR %s: %w", path, err)
			}
			if clip.NumChannels() < 2 {
				return fmt.Errorf("RIR %s has %d channel(s), need 2", path, clip.NumChannels())
			}
			if clip.SampleRate != sampleRate {
				return fmt.Errorf("RIR %s is %d Hz, expected %d Hz", path, clip.SampleRate, sampleRate)
			}

			r := RIR{
				Room:    room,
				Degrees: deg,
				Path:    path,
				IR:      audio.Stereo{clip.Channels[0], clip.Channels[1]},
			}
			mu.Lock()
			bank.rooms[room] = append(bank.rooms[room], r)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, skipped, err
	}

	for room := range bank.rooms {
		rirs := bank.rooms[room]
		sort.Slice(rirs, func(i, j int) bool { return rirs[i].Degrees < rirs[j].Degrees })
	}
	return bank, skipped, nil
}

// Add registers an impulse response, keeping the room's list sorted.
func (b *Bank) Add(r RIR) {
	if b.rooms == nil {
		b.rooms = make(map[int][]RIR)
	}
	rirs := append(b.rooms[r.Room], r)
	sort.Slice(rirs, func(i, j int) bool { return rirs[i].Degrees < rirs[j].Degrees })
	b.rooms[r.Room] = rirs
}

// Len returns the total number of impulse responses.
func (b *Bank) Len() int {
	n := 0
	for _, rirs := range b.rooms {
		n += len(rirs)
	}
	return n
}

// Rooms returns the room indices present in the bank, ascending.
func (b *Bank) Rooms() []int {
	out := make([]int, 0, len(b.rooms))
	for room := range b.rooms {
		out = append(out, room)
	}
	sort.Ints(out)
	return out
}

// Nearest returns the RIR of room measured closest to deg.
func (b *Bank) Nearest(room int, deg float64) (*RIR, error) {
	rirs := b.rooms[room]
	if len(rirs) == 0 {
		return nil, fmt.Errorf("%w: room %d", ErrNoRIR, room)
	}

	i := sort.Search(len(rirs), func(i int) bool { return rirs[i].Degrees >= deg })
	switch {
	case i == 0:
		return &rirs[0], nil
	case i == len(rirs):
		return &rirs[len(rirs)-1], nil
	}
	if math.Abs(rirs[i-1].Degrees-deg) <= math.Abs(rirs[i].Degrees-deg) {
		return &rirs[i-1], nil
	}
	return &rirs[i], nil
}
