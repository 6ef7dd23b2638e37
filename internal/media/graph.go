package media

import (
	"errors"
	"fmt"
	"strings"
)

// Static errors for graph rendering.
var (
	// ErrEmptyGraph is returned when a graph without inputs is rendered.
	ErrEmptyGraph = errors.New("filter graph has no inputs")
	// ErrNoOutputPath is returned when no output path is given.
	ErrNoOutputPath = errors.New("no output path provided")
	// ErrNoVideoLabel is returned when the output does not map a video stream.
	ErrNoVideoLabel = errors.New("no video stream mapped")
)

// Input is one ffmpeg input file with the options placed before its -i.
type Input struct {
	Path    string
	Options []string
}

// Graph accumulates ffmpeg inputs and filter_complex chains.
// It is not safe for concurrent use.
type Graph struct {
	inputs []Input
	chains []string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddInput appends an input and returns its ffmpeg input index.
func (g *Graph) AddInput(path string, opts ...string) int {
	g.inputs = append(g.inputs, Input{Path: path, Options: opts})
	return len(g.inputs) - 1
}

// AddChain appends one filter chain, formatted with fmt.Sprintf.
func (g *Graph) AddChain(format string, args ...any) {
	g.chains = append(g.chains, fmt.Sprintf(format, args...))
}

// Inputs returns a copy of the graph inputs.
func (g *Graph) Inputs() []Input {
	return append([]Input(nil), g.inputs...)
}

// Chains returns a copy of the filter chains.
func (g *Graph) Chains() []string {
	return append([]string(nil), g.chains...)
}

// FilterComplex returns the chains joined into one filter_complex argument.
func (g *Graph) FilterComplex() string {
	return strings.Join(g.chains, ";")
}

// Output describes where and how a rendered graph is written.
type Output struct {
	// Path is the destination file.
	Path string
	// Video and Audio are the stream labels to map, e.g. "[vout]".
	// Audio may be empty for a silent output.
	Video string
	Audio string
	// Options are encoder options placed before the output path.
	Options []string
}

// Args returns the full ffmpeg argument list for rendering to out.
func (g *Graph) Args(out Output) ([]string, error) {
	if len(g.inputs) == 0 {
		return nil, ErrEmptyGraph
	}
	if out.Path == "" {
		return nil, ErrNoOutputPath
	}
	if out.Video == "" {
		return nil, ErrNoVideoLabel
	}

	args := []string{"-y", "-v", "error"}
	for _, in := range g.inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
	}
	if len(g.chains) > 0 {
		args = append(args, "-filter_complex", g.FilterComplex())
	}
	args = append(args, "-map", out.Video)
	if out.Audio != "" {
		args = append(args, "-map", out.Audio)
	}
	args = append(args, out.Options...)
	args = append(args, out.Path)

	return args, nil
}
