package images

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
	"gopkg.in/yaml.v3"
)

// Ref is a container image reference, "[<registry>[:<port>]/]<name>:<tag>".
type Ref struct {
	Repository string
	Tag        string
}

func (r *Ref) Equal(o *Ref) bool {
	if (r == nil) || (o == nil) {
		return (r == nil) && (o == nil)
	}
	return r.Repository == o.Repository && r.Tag == o.Tag
}

// Parse string as an image reference, and update itself.
//
// The accepted syntax is the docker image tag spec[^1].
//
// [^1]: https://docs.docker.com/engine/reference/commandline/tag/#description
func (r *Ref) Parse(s string) error {
	ref, err := name.NewTag(s, name.WithDefaultRegistry(""))
	if err != nil {
		return err
	}

	r.Repository = ref.Repository.Name()
	r.Tag = ref.TagStr()
	return nil
}

func (r Ref) marshal() string {
	if r.Repository == "" && r.Tag == "" {
		return ""
	}
	return fmt.Sprintf(`%s:%s`, r.Repository, r.Tag)
}

func (r Ref) MarshalJSON() ([]byte, error) {
	b := bytes.NewBufferString(`"`)
	b.WriteString(r.marshal())
	b.WriteString(`"`)
	return b.Bytes(), nil
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	expr := new(string)
	if err := json.Unmarshal(b, expr); err != nil {
		return err
	}
	return r.Parse(*expr)
}

func (r Ref) MarshalYAML() (interface{}, error) {
	n := yaml.Node{
		Kind:  yaml.ScalarNode,
		Value: r.marshal(),
		Style: yaml.DoubleQuotedStyle,
	}
	return n, nil
}

func (r *Ref) UnmarshalYAML(node *yaml.Node) error {
	expr := new(string)
	if err := node.Decode(expr); err != nil {
		return err
	}
	return r.Parse(*expr)
}

func (r Ref) String() string {
	return r.marshal()
}
