package index

// pythonBuiltins is the builtin namespace the resolver falls back to after
// exhausting the lexical chain. Names here resolve without a binding and are
// never reported as undefined.
var pythonBuiltins = map[string]bool{
	"abs": true, "aiter": true, "all": true, "anext": true, "any": true,
	"ascii": true, "bin": true, "bool": true, "breakpoint": true,
	"bytearray": true, "bytes": true, "callable": true, "chr": true,
	"classmethod": true, "compile": true, "complex": true, "delattr": true,
	"dict": true, "dir": true, "divmod": true, "enumerate": true,
	"eval": true, "exec": true, "filter": true, "float": true,
	"format": true, "frozenset": true, "getattr": true, "globals": true,
	"hasattr": true, "hash": true, "help": true, "hex": true, "id": true,
	"input": true, "int": true, "isinstance": true, "issubclass": true,
	"iter": true, "len": true, "list": true, "locals": true, "map": true,
	"max": true, "memoryview": true, "min": true, "next": true,
	"object": true, "oct": true, "open": true, "ord": true, "pow": true,
	"print": true, "property": true, "range": true, "repr": true,
	"reversed": true, "round": true, "set": true, "setattr": true,
	"slice": true, "sorted": true, "staticmethod": true, "str": true,
	"sum": true, "super": true, "tuple": true, "type": true, "vars": true,
	"zip": true,

	"BaseException": true, "Exception": true, "ArithmeticError": true,
	"AssertionError": true, "AttributeError": true, "EOFError": true,
	"FileNotFoundError": true, "ImportError": true, "IndexError": true,
	"KeyError": true, "KeyboardInterrupt": true, "LookupError": true,
	"ModuleNotFoundError": true, "NameError": true, "NotImplementedError": true,
	"OSError": true, "OverflowError": true, "RecursionError": true,
	"RuntimeError": true, "StopAsyncIteration": true, "StopIteration": true,
	"SyntaxError": true, "SystemExit": true, "TypeError": true,
	"UnboundLocalError": true, "UnicodeDecodeError": true,
	"UnicodeEncodeError": true, "ValueError": true, "ZeroDivisionError": true,
	"Warning": true, "DeprecationWarning": true, "UserWarning": true,

	"NotImplemented": true, "Ellipsis": true,
	"__name__": true, "__file__": true, "__doc__": true, "__debug__": true,
	"__builtins__": true, "__spec__": true, "__loader__": true,
	"__package__": true,
}

// IsBuiltin reports whether name is in the builtin namespace.
func IsBuiltin(name string) bool {
	return pythonBuiltins[name]
}
