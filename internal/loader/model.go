package loader

// File is the on-disk model schema. JSON files are accepted as well since
// they are valid YAML.
type File struct {
	Enums []EnumSpec    `yaml:"enums"`
	Tags  []TagTypeSpec `yaml:"tags"`
	Types []TypeSpec    `yaml:"types"`
}

// EnumSpec declares an enum type
type EnumSpec struct {
	Name      string   `yaml:"name"`
	Constants []string `yaml:"constants"`
}

// TagTypeSpec declares a tag type
type TagTypeSpec struct {
	Name       string          `yaml:"name"`
	Inherited  bool            `yaml:"inherited"`
	Repeatable string          `yaml:"repeatable"`
	Attributes []AttributeSpec `yaml:"attributes"`
	Tags       []TagSpec       `yaml:"tags"`
}

// AttributeSpec declares a tag type member. Members with params are not
// attributes and are kept only for completeness of the model.
type AttributeSpec struct {
	Name    string     `yaml:"name"`
	Type    string     `yaml:"type"`
	Ref     string     `yaml:"ref"`
	Array   bool       `yaml:"array"`
	Params  int        `yaml:"params"`
	Default any        `yaml:"default"`
	Alias   *AliasSpec `yaml:"alias"`
}

// AliasSpec declares the attribute an attribute is an alias for
type AliasSpec struct {
	Tag       string `yaml:"tag"`
	Attribute string `yaml:"attribute"`
}

// TagSpec is a tag occurrence
type TagSpec struct {
	Type   string         `yaml:"type"`
	Values map[string]any `yaml:"values"`
}

// TypeSpec declares a class or interface
type TypeSpec struct {
	Name       string            `yaml:"name"`
	Kind       string            `yaml:"kind"`
	Extends    string            `yaml:"extends"`
	Implements []string          `yaml:"implements"`
	Enclosing  string            `yaml:"enclosing"`
	Bindings   map[string]string `yaml:"bindings"`
	Tags       []TagSpec         `yaml:"tags"`
	Methods    []MethodSpec      `yaml:"methods"`
	Fields     []FieldSpec       `yaml:"fields"`
}

// MethodSpec declares a method. Bridge names the parameter signature of the
// method of the same name this method delegates to, e.g. "lang.String".
type MethodSpec struct {
	Name    string      `yaml:"name"`
	Params  []ParamSpec `yaml:"params"`
	Private bool        `yaml:"private"`
	Bridge  *string     `yaml:"bridge"`
	Tags    []TagSpec   `yaml:"tags"`
}

// ParamSpec declares a method parameter. Var names the type variable the
// parameter is declared with, if any.
type ParamSpec struct {
	Type string `yaml:"type"`
	Var  string `yaml:"var"`
}

// FieldSpec declares a field
type FieldSpec struct {
	Name string    `yaml:"name"`
	Tags []TagSpec `yaml:"tags"`
}
