package utils_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
	"github.com/go-playground/validator/v10"
)

func TestToDecimalParsesAmounts(t *testing.T) {
	if got := utils.ToDecimal("19.99"); got.String() != "19.99" {
		t.Fatalf("expected 19.99, got %s", got)
	}
	if got := utils.ToDecimal(""); !got.IsZero() {
		t.Fatalf("blank should parse to zero, got %s", got)
	}
	if got := utils.ToDecimal("not-a-number"); !got.IsZero() {
		t.Fatalf("malformed should parse to zero, got %s", got)
	}
}

func TestProcessValidationErrorsFlattensFields(t *testing.T) {
	type triggerBody struct {
		Store    string `validate:"required"`
		SyncType string `validate:"required,oneof=inventory orders"`
	}

	err := validator.New().Struct(triggerBody{SyncType: "refunds"})
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	fields := utils.ProcessValidationErrors(err)
	if fields["Store"] != "required" {
		t.Fatalf("expected Store=required, got %q", fields["Store"])
	}
	if fields["SyncType"] != "oneof" {
		t.Fatalf("expected SyncType=oneof, got %q", fields["SyncType"])
	}
}
