package progress

import (
	"io"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Progress renders a group of progress bars on a terminal.
type Progress struct {
	container *mpb.Progress
}

type Option func(*[]mpb.ContainerOption)

func WithOutput(w io.Writer) Option {
	return func(opts *[]mpb.ContainerOption) {
		*opts = append(*opts, mpb.WithOutput(w))
	}
}

func WithRefreshRate(d time.Duration) Option {
	return func(opts *[]mpb.ContainerOption) {
		*opts = append(*opts, mpb.WithRefreshRate(d))
	}
}

// NewProgress creates a new progress bar group.
func NewProgress(opts ...Option) *Progress {
	containerOpts := []mpb.ContainerOption{
		mpb.WithOutput(os.Stdout),
		mpb.WithRefreshRate(150 * time.Millisecond),
	}
	for _, opt := range opts {
		opt(&containerOpts)
	}
	return &Progress{container: mpb.New(containerOpts...)}
}

// Bar is a single progress bar counting completed items.
type Bar struct {
	bar *mpb.Bar
}

// AddBar adds a bar tracking total items under the given description.
func (p *Progress) AddBar(description string, total int64) *Bar {
	bar := p.container.AddBar(total,
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Spinner(spinner, decor.WCSyncSpaceR),
			decor.Name(description, decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d/%d", decor.WCSyncSpace),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
		),
	)
	return &Bar{bar: bar}
}

// Increment advances the bar by one item.
func (b *Bar) Increment() {
	b.bar.Increment()
}

// Abort removes the bar without completing it.
func (b *Bar) Abort() {
	b.bar.Abort(true)
}

// Wait blocks until all bars have completed or been aborted.
func (p *Progress) Wait() {
	p.container.Wait()
}
