// Package templater implements the parameter templating facility: it
// walks a JSON value looking for every match of a JSON-path pattern,
// and replaces each match with either a literal value or the result
// of evaluating a user script in a fresh sandbox, with the current
// resource's index passed to the script.
package templater

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Engine evaluates JSON-path replacements. It holds no state between
// calls; every method is safe for concurrent use.
type Engine struct{}

// New creates a templating Engine.
func New() *Engine {
	return &Engine{}
}

// Replace substitutes every match of path in target with the literal
// JSON value in valueJSON.
func (e *Engine) Replace(target, path, valueJSON string) (string, error) {
	return e.apply(target, path, func(match gjson.Result, _ int) (string, error) {
		return valueJSON, nil
	})
}

// ReplaceCustom substitutes every match of path in target with the
// result of evaluating scriptSource against that match and
// resourceIndex. scriptSource must define a top-level function taking
// two arguments (the matched JSON value, parsed into a native JS
// value, and the integer resource index) and returning the
// replacement value.
//
// Each match is evaluated in its own fresh goja.Runtime: no state,
// no host globals, and no I/O are reachable from the script, so a
// malformed or hostile script can only fail its own evaluation, never
// reach outside the sandbox.
func (e *Engine) ReplaceCustom(ctx context.Context, target, path, scriptSource string, resourceIndex int) (string, error) {
	return e.apply(target, path, func(match gjson.Result, _ int) (string, error) {
		return evalScript(scriptSource, match.Raw, resourceIndex)
	})
}

// matchFn computes the replacement JSON for one matched value.
type matchFn func(match gjson.Result, index int) (string, error)

// apply walks every concrete match of path within target and applies
// fn to each, returning the fully substituted document.
//
// A path containing a "#" wildcard segment (e.g. "resources.#.url")
// is expanded against the array's current length before each
// replacement is applied, so a prior replacement in the same call
// cannot shift the indices of later ones.
func (e *Engine) apply(target, path string, fn matchFn) (string, error) {
	if !strings.Contains(path, "#") {
		match := gjson.Get(target, path)
		if !match.Exists() {
			return target, nil
		}
		replacement, err := fn(match, 0)
		if err != nil {
			return "", err
		}
		return sjson.SetRaw(target, path, replacement)
	}

	arrayPath := path[:strings.Index(path, "#")]
	arrayPath = strings.TrimSuffix(arrayPath, ".")
	length := gjson.Get(target, arrayPath+".#").Int()

	result := target
	for i := 0; i < int(length); i++ {
		concretePath := strings.Replace(path, "#", strconv.Itoa(i), 1)
		match := gjson.Get(result, concretePath)
		if !match.Exists() {
			continue
		}
		replacement, err := fn(match, i)
		if err != nil {
			return "", fmt.Errorf("templater: match %d of %s: %w", i, path, err)
		}
		result, err = sjson.SetRaw(result, concretePath, replacement)
		if err != nil {
			return "", fmt.Errorf("templater: applying match %d of %s: %w", i, path, err)
		}
	}

	return result, nil
}

// evalScript runs scriptSource in a fresh sandbox against one matched
// value and the resource index, returning the JSON encoding of its
// return value.
func evalScript(scriptSource, matchJSON string, resourceIndex int) (string, error) {
	vm := goja.New()

	program, err := goja.Compile("templater-script", wrapScript(scriptSource), false)
	if err != nil {
		return "", fmt.Errorf("templater: compiling script: %w", err)
	}

	if _, err := vm.RunProgram(program); err != nil {
		return "", fmt.Errorf("templater: loading script: %w", err)
	}

	entry, ok := goja.AssertFunction(vm.Get("__forge_templater_entry"))
	if !ok {
		return "", fmt.Errorf("templater: script did not define a usable entry function")
	}

	var matchValue interface{}
	if err := json.Unmarshal([]byte(matchJSON), &matchValue); err != nil {
		return "", fmt.Errorf("templater: decoding matched value: %w", err)
	}

	result, err := entry(goja.Undefined(), vm.ToValue(matchValue), vm.ToValue(resourceIndex))
	if err != nil {
		return "", fmt.Errorf("templater: evaluating script: %w", err)
	}

	exported := result.Export()
	encoded, err := json.Marshal(exported)
	if err != nil {
		return "", fmt.Errorf("templater: encoding script result: %w", err)
	}

	return string(encoded), nil
}

// wrapScript assigns the user's function expression to a well-known
// global so it can be retrieved and invoked without trusting the
// script to declare any particular name.
func wrapScript(scriptSource string) string {
	return "var __forge_templater_entry = (" + scriptSource + ");"
}
