package luadefaults

import (
	"os"

	lua "github.com/yuin/gopher-lua"
)

// NewConfigState returns a *lua.LState able to evaluate configuration
// files: only base, table, string and math are loaded and the base
// functions that reach the filesystem are removed.
//
// Scripts can read environment variables with env(name [, default]).
func NewConfigState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	if err := InjectConfigLibs(L); err != nil {
		L.Close()
		return nil, err
	}
	return L, nil
}

// InjectConfigLibs loads the libs config code can use into L
func InjectConfigLibs(L *lua.LState) error {
	for _, pair := range []struct {
		n string
		f lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(pair.f),
			NRet:    0,
			Protect: true,
		}, lua.LString(pair.n)); err != nil {
			return err
		}
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("env", L.NewFunction(luaEnv))
	return nil
}

func luaEnv(L *lua.LState) int {
	name := L.CheckString(1)
	val, ok := os.LookupEnv(name)
	if !ok {
		L.Push(L.Get(2))
		return 1
	}
	L.Push(lua.LString(val))
	return 1
}
