package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/kerf/pkg/csg"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// hasError returns true if errs contains at least one error-severity finding
// whose message contains substr.
func hasError(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if e.Severity == SeverityError && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func hasWarning(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if e.Severity == SeverityWarning && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestValidateValidScene(t *testing.T) {
	errs := Validate(buildScene())
	if len(errs) != 0 {
		t.Fatalf("valid scene reported %d findings: %v", len(errs), errs)
	}
	if err := Check(buildScene()); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestValidateNilRoot(t *testing.T) {
	if !hasError(Validate(nil), "no root") {
		t.Error("nil root not reported")
	}
}

func TestValidateStructure(t *testing.T) {
	bad := &Node{ID: "t", Data: Translate("", v3.Vec{X: 1}, nil).Data}
	tests := []struct {
		name string
		root *Node
		want string
	}{
		{"transform without child", bad, "exactly one child"},
		{"transform with two children", &Node{Data: TransformData{}, Children: []*Node{cube("", 1), cube("", 1)}}, "exactly one child"},
		{"primitive with children", &Node{Data: cube("", 1).Data, Children: []*Node{cube("", 1)}}, "primitive has 1 children"},
		{"primitive without shape", NewPrimitive("p", nil), "no shape"},
		{"boolean without operands", NewBoolean("b", csg.Union), "no operands"},
		{"unknown operator", NewBoolean("b", csg.Op(7), cube("", 1), cube("", 2)), "unsupported operator"},
		{"missing data", NewGroup("g", &Node{ID: "empty"}), "no data"},
		{"nil child", NewGroup("g", cube("", 1), nil), "nil child"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.root)
			if !hasError(errs, tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, errs)
			}
			if Check(tt.root) == nil {
				t.Error("Check should fail")
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	root := NewGroup("root",
		NewGroup("empty"),
		NewBoolean("single", csg.Difference, cube("", 1)),
	)
	errs := Validate(root)
	if !hasWarning(errs, "empty group") {
		t.Error("empty group not reported")
	}
	if !hasWarning(errs, "single operand") {
		t.Error("single-operand boolean not reported")
	}
	if err := Check(root); err != nil {
		t.Errorf("warnings should not block: %v", err)
	}
}

func TestValidateDuplicateIdentity(t *testing.T) {
	root := NewGroup("root", cube("a", 1), Translate("", v3.Vec{X: 3}, cube("a", 1)))
	err := Check(root)
	if !errors.Is(err, ErrDuplicateNodeID) {
		t.Fatalf("err = %v, want ErrDuplicateNodeID", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatal("error should be a *ValidationError")
	}
	if ve.NodeID != "a" || ve.Path != "root/1/0" {
		t.Errorf("finding at %q %q, want a root/1/0", ve.NodeID, ve.Path)
	}
	if !IsValidationError(err) {
		t.Error("IsValidationError = false")
	}
	if !strings.Contains(err.Error(), `node "a"`) {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestValidateSharedNodeIsNotDuplicate(t *testing.T) {
	shared := cube("shared", 1)
	root := NewBoolean("root", csg.Union, shared, Translate("", v3.Vec{X: 5}, shared))
	if err := Check(root); err != nil {
		t.Errorf("shared node rejected: %v", err)
	}
}

func TestValidateCycle(t *testing.T) {
	g := NewGroup("g")
	g.Children = []*Node{Translate("", v3.Vec{}, g)}
	if err := Check(g); !errors.Is(err, ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
}

func TestSeverityString(t *testing.T) {
	if SeverityError.String() != "error" || SeverityWarning.String() != "warning" {
		t.Error("severity names")
	}
	if ValidationSeverity(5).String() != "ValidationSeverity(5)" {
		t.Errorf("unknown severity = %q", ValidationSeverity(5).String())
	}
}
