// Package control exposes a playback session to agents as an MCP server.
//
// Every tool returns the session state after the action as structured
// output, so a client can chain actions without a separate status call.
package control

import (
	"context"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/livescript/internal/playback"
)

// Controls is the subset of a session the MCP tools drive. Implementations
// must be safe for concurrent use.
type Controls interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Toggle(ctx context.Context) error
	Restart(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SeekWord(ctx context.Context, query string) (int, error)
	SetSpeed(ctx context.Context, rate float64) error
	State(ctx context.Context) (playback.State, error)
}

// SeekInput is the argument of the seek tool.
type SeekInput struct {
	Seconds float64 `json:"seconds" jsonschema:"target position in seconds from the start of the audio"`
}

// SeekWordInput is the argument of the seek_word tool.
type SeekWordInput struct {
	Query string `json:"query" jsonschema:"word or short phrase to jump to; spelling is matched loosely"`
}

// SpeedInput is the argument of the set_speed tool.
type SpeedInput struct {
	Rate float64 `json:"rate" jsonschema:"playback speed multiplier between 0.25 and 4"`
}

// Option configures a [Server].
type Option func(*Server)

// WithVersion sets the implementation version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server is the MCP control surface.
type Server struct {
	controls Controls
	version  string
	mcp      *mcpsdk.Server
}

// New builds the MCP server and registers its tools.
func New(controls Controls, opts ...Option) *Server {
	s := &Server{controls: controls, version: "dev"}
	for _, o := range opts {
		o(s)
	}
	s.mcp = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "livescript", Version: s.version}, nil)
	s.register()
	return s
}

// MCP returns the underlying SDK server, for in-process transports.
func (s *Server) MCP() *mcpsdk.Server { return s.mcp }

// Handler serves the tools over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.mcp }, nil)
}

func (s *Server) register() {
	noArg := func(name, desc string, act func(context.Context) error) {
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{Name: name, Description: desc},
			func(ctx context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, playback.State, error) {
				return s.after(ctx, name, act(ctx))
			})
	}

	noArg("play", "Start or resume playback and the live transcript reveal.", s.controls.Play)
	noArg("pause", "Pause playback. Revealed words stay visible.", s.controls.Pause)
	noArg("toggle", "Play if paused, otherwise pause.", s.controls.Toggle)
	noArg("restart", "Clear the transcript, rewind to the start and play.", s.controls.Restart)
	noArg("status", "Report playback status, position and reveal progress.", func(context.Context) error { return nil })

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "seek",
		Description: "Jump to a position in seconds. Words already revealed stay revealed.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, in SeekInput) (*mcpsdk.CallToolResult, playback.State, error) {
		return s.after(ctx, "seek", s.controls.Seek(ctx, in.Seconds))
	})

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "seek_word",
		Description: "Jump to the next occurrence of a spoken word or phrase.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, in SeekWordInput) (*mcpsdk.CallToolResult, playback.State, error) {
		_, err := s.controls.SeekWord(ctx, in.Query)
		return s.after(ctx, "seek_word", err)
	})

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "set_speed",
		Description: "Change the playback speed.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, in SpeedInput) (*mcpsdk.CallToolResult, playback.State, error) {
		return s.after(ctx, "set_speed", s.controls.SetSpeed(ctx, in.Rate))
	})
}

// after reports the state following a tool action, or the action's error.
func (s *Server) after(ctx context.Context, tool string, err error) (*mcpsdk.CallToolResult, playback.State, error) {
	if err != nil {
		return nil, playback.State{}, fmt.Errorf("control: %s: %w", tool, err)
	}
	st, err := s.controls.State(ctx)
	if err != nil {
		return nil, playback.State{}, fmt.Errorf("control: %s: read state: %w", tool, err)
	}
	return nil, st, nil
}
