package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor/object"
	"go.uber.org/zap"
)

// makeHasPrefixFn creates the "has_prefix" host function.
//
// has_prefix(s, prefix) → bool
func makeHasPrefixFn() *object.Builtin {
	return makeStringPredicate("has_prefix", strings.HasPrefix)
}

// makeHasSuffixFn creates the "has_suffix" host function.
//
// has_suffix(s, suffix) → bool
func makeHasSuffixFn() *object.Builtin {
	return makeStringPredicate("has_suffix", strings.HasSuffix)
}

func makeStringPredicate(name string, pred func(s, arg string) bool) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError(name, 2, len(args))
		}
		s, err := toString(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		arg, err := toString(args[1])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		return object.NewBool(pred(s, arg))
	})
}

// makeExtFn creates the "ext" host function, returning the extension of a
// module specifier or file path including the dot.
//
// ext(path) → string
func makeExtFn() *object.Builtin {
	return object.NewBuiltin("ext", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("ext", 1, len(args))
		}
		p, err := toString(args[0])
		if err != nil {
			return object.Errorf("ext: %v", err)
		}
		return object.NewString(filepath.Ext(p))
	})
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger *zap.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg)
}
