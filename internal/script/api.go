package script

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/garyjia/hookbus/pkg/hooks"
)

func (e *Engine) install() {
	tbl := e.L.NewTable()
	e.L.SetFuncs(tbl, map[string]lua.LGFunction{
		"add":        e.luaAdd,
		"has":        e.luaHas,
		"remove":     e.luaRemove,
		"remove_all": e.luaRemoveAll,
		"run":        e.luaRun,
		"current":    e.luaCurrent,
		"doing":      e.luaDoing,
		"did":        e.luaDid,
	})
	e.L.SetGlobal("hooks", tbl)
	e.L.SetGlobal("print", e.L.NewFunction(e.luaPrint))
}

func (e *Engine) callback(fn *lua.LFunction) luaCallback {
	return luaCallback{engine: e, fn: fn}
}

func (e *Engine) luaAdd(L *lua.LState) int {
	tag := hooks.Tag(L.CheckString(1))
	fn := L.CheckFunction(2)
	priority := L.OptInt(3, hooks.DefaultPriority)

	e.dispatcher.AddAt(tag, e.callback(fn), priority)
	return 0
}

func (e *Engine) luaHas(L *lua.LState) int {
	tag := hooks.Tag(L.CheckString(1))

	if L.GetTop() < 2 || L.Get(2) == lua.LNil {
		L.Push(lua.LBool(e.dispatcher.Has(tag)))
		return 1
	}

	fn := L.CheckFunction(2)
	priority, ok := e.dispatcher.HasCallback(tag, e.callback(fn))
	if !ok {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LNumber(priority))
	return 1
}

func (e *Engine) luaRemove(L *lua.LState) int {
	tag := hooks.Tag(L.CheckString(1))
	fn := L.CheckFunction(2)
	priority := L.OptInt(3, hooks.DefaultPriority)

	L.Push(lua.LBool(e.dispatcher.RemoveAt(tag, e.callback(fn), priority)))
	return 1
}

func (e *Engine) luaRemoveAll(L *lua.LState) int {
	tag := hooks.Tag(L.CheckString(1))

	if L.GetTop() < 2 || L.Get(2) == lua.LNil {
		L.Push(lua.LBool(e.dispatcher.RemoveAll(tag)))
		return 1
	}
	L.Push(lua.LBool(e.dispatcher.RemoveAllAt(tag, L.CheckInt(2))))
	return 1
}

func (e *Engine) luaRun(L *lua.LState) int {
	tag := hooks.Tag(L.CheckString(1))
	value := fromLua(L.Get(2))

	var args []any
	for i := 3; i <= L.GetTop(); i++ {
		args = append(args, fromLua(L.Get(i)))
	}

	out, err := e.dispatcher.Run(tag, value, args...)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(toLua(L, out))
	return 1
}

func (e *Engine) luaCurrent(L *lua.LState) int {
	tag, ok := e.dispatcher.Current()
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(tag))
	return 1
}

func (e *Engine) luaDoing(L *lua.LState) int {
	if L.GetTop() < 1 || L.Get(1) == lua.LNil {
		L.Push(lua.LBool(e.dispatcher.Doing()))
		return 1
	}
	L.Push(lua.LBool(e.dispatcher.DoingTag(hooks.Tag(L.CheckString(1)))))
	return 1
}

func (e *Engine) luaDid(L *lua.LState) int {
	L.Push(lua.LNumber(e.dispatcher.Did(hooks.Tag(L.CheckString(1)))))
	return 1
}

func (e *Engine) luaPrint(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	e.logger.Info("Script output", zap.Strings("values", parts))
	return 0
}
