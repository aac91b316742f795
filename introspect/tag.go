package introspect

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/chaisql/databind/bind/property"
)

// fieldTag holds the options of a field tag:
//
//	bind:"name,omitempty,view=public|admin,format=2006-01-02"
type fieldTag struct {
	name      string
	ignored   bool
	suppress  property.Suppress
	views     []string
	typeID    bool
	backRef   bool
	readOnly  bool
	inject    string
	format    string
	converter string
}

func parseFieldTag(tag string) (fieldTag, error) {
	var ft fieldTag
	if tag == "-" {
		ft.ignored = true
		return ft, nil
	}

	name, opts, _ := strings.Cut(tag, ",")
	ft.name = name

	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		key, value, hasValue := strings.Cut(opt, "=")

		switch key {
		case "omitempty":
			ft.suppress = property.SuppressIfEmpty
		case "omitnil":
			ft.suppress = property.SuppressIfNull
		case "omitzero":
			ft.suppress = property.SuppressIfDefault
		case "typeid":
			ft.typeID = true
		case "backref":
			ft.backRef = true
		case "readonly":
			ft.readOnly = true
		case "view":
			ft.views = splitList(value)
		case "inject":
			ft.inject = value
		case "format":
			ft.format = value
		case "using":
			ft.converter = value
		case "":
			continue
		default:
			return ft, errors.Newf("unknown tag option %q", key)
		}

		if needsValue(key) && (!hasValue || value == "") {
			return ft, errors.Newf("tag option %q requires a value", key)
		}
	}

	return ft, nil
}

func needsValue(key string) bool {
	switch key {
	case "view", "inject", "format", "using":
		return true
	}
	return false
}

// typeTag holds the options set on the blank field of a struct:
//
//	_ struct{} `bind:"ignore=a|b,identity=intseq,idprop=@ref,ignoreunknown"`
type typeTag struct {
	ignored       []string
	identity      string
	idProperty    string
	alwaysAsID    bool
	ignoreUnknown bool
}

func parseTypeTag(tag string) (typeTag, error) {
	var tt typeTag

	for tag != "" {
		var opt string
		opt, tag, _ = strings.Cut(tag, ",")
		key, value, _ := strings.Cut(opt, "=")

		switch key {
		case "ignore":
			tt.ignored = append(tt.ignored, splitList(value)...)
		case "identity":
			tt.identity = value
		case "idprop":
			tt.idProperty = value
		case "alwaysasid":
			tt.alwaysAsID = true
		case "ignoreunknown":
			tt.ignoreUnknown = true
		case "":
		default:
			return tt, errors.Newf("unknown type option %q", key)
		}
	}

	if tt.identity == "" && (tt.idProperty != "" || tt.alwaysAsID) {
		return tt, errors.New("idprop and alwaysasid require an identity")
	}
	return tt, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "|")
}
