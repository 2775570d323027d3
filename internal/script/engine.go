// Package script lets Lua scripts attach callbacks to a hooks.Dispatcher.
//
// Scripts see a global "hooks" table:
//
//	hooks.add(tag, fn [, priority])      -- attach fn, default priority 10
//	hooks.has(tag [, fn])                -- true/false, or fn's priority/false
//	hooks.remove(tag, fn [, priority])   -- true if a registration was removed
//	hooks.remove_all(tag [, priority])   -- always true
//	hooks.run(tag, value, ...)           -- returns the filtered value
//	hooks.current()                      -- running tag or nil
//	hooks.doing([tag])                   -- whether a (or any) hook is running
//	hooks.did(tag)                       -- number of runs of tag
//
// A Lua callback receives the value followed by the extra run arguments and
// its first return value replaces the value, so a function that returns
// nothing yields nil.
package script

import (
	"errors"
	"fmt"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/garyjia/hookbus/pkg/hooks"
)

// ErrEngineClosed is returned when using an engine after Close
var ErrEngineClosed = errors.New("script engine is closed")

// Engine owns a sandboxed Lua state bound to a dispatcher.
//
// gopher-lua states are not goroutine-safe. An Engine, and every hook that
// may call one of its callbacks, must be driven from one goroutine at a
// time.
type Engine struct {
	L          *lua.LState
	dispatcher *hooks.Dispatcher
	logger     *zap.Logger

	closed bool
	loaded []string
}

// NewEngine creates an engine whose scripts register on d
func NewEngine(d *hooks.Dispatcher, logger *zap.Logger) *Engine {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	e := &Engine{
		L:          L,
		dispatcher: d,
		logger:     logger,
	}
	e.install()

	return e
}

// openSafeLibraries opens the libraries scripts need and nothing that
// reaches the file system or the process.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// DoString executes a chunk of Lua source
func (e *Engine) DoString(code string) error {
	if e.closed {
		return ErrEngineClosed
	}
	return e.protect(func() error {
		return e.L.DoString(code)
	})
}

// LoadFile executes a Lua file
func (e *Engine) LoadFile(path string) error {
	if e.closed {
		return ErrEngineClosed
	}

	if err := e.protect(func() error { return e.L.DoFile(path) }); err != nil {
		return fmt.Errorf("failed to load script %s: %w", path, err)
	}

	e.loaded = append(e.loaded, path)
	e.logger.Info("Script loaded", zap.String("path", path))
	return nil
}

// LoadDir executes every *.lua file in dir in lexical order and returns the
// number of files loaded. Loading stops at the first failing script.
func (e *Engine) LoadDir(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return 0, fmt.Errorf("failed to list scripts in %s: %w", dir, err)
	}

	for i, path := range paths {
		if err := e.LoadFile(path); err != nil {
			return i, err
		}
	}
	return len(paths), nil
}

// Loaded returns the files loaded so far
func (e *Engine) Loaded() []string {
	return append([]string(nil), e.loaded...)
}

// Close releases the Lua state. Callbacks registered by its scripts stay on
// the dispatcher and fail with ErrEngineClosed when run.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.L.Close()
}

func (e *Engine) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// luaCallback adapts a Lua function to hooks.Callback. Two values wrapping
// the same function are equal, which lets scripts remove what they added.
type luaCallback struct {
	engine *Engine
	fn     *lua.LFunction
}

func (c luaCallback) Name() string {
	if c.fn.Proto != nil {
		return fmt.Sprintf("lua:%s:%d", c.fn.Proto.SourceName, c.fn.Proto.LineDefined)
	}
	return "lua:function"
}

func (c luaCallback) Call(value any, args []any) (any, error) {
	e := c.engine
	if e.closed {
		return nil, ErrEngineClosed
	}

	L := e.L
	L.Push(c.fn)
	L.Push(toLua(L, value))
	for _, arg := range args {
		L.Push(toLua(L, arg))
	}

	if err := L.PCall(1+len(args), 1, nil); err != nil {
		return nil, err
	}

	ret := L.Get(-1)
	L.Pop(1)
	return fromLua(ret), nil
}
