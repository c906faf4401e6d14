package stack

import (
	"os"

	"gopkg.in/yaml.v3"
)

// load stack config from a file.
//
// args:
//   - filepath: filepath refers a config file.
//
// returns *StackConfig, error:
//
//	When loading success, returns `(*StackConfig, nil)`.
//	Otherwise, returns `(nil, error)`.
func LoadStackConfig(filepath string) (*StackConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (out *StackConfig, err error) {
	var _out *StackConfigMarshall
	err = yaml.Unmarshal(conf, &_out)
	if err != nil {
		return nil, err
	}
	if _out == nil {
		_out = &StackConfigMarshall{}
	}
	out = TrySeal(_out)
	return out, nil
}

// Default is the stack built from defaults only, as if an empty config
// file were loaded.
func Default() *StackConfig {
	return TrySeal(&StackConfigMarshall{})
}
