package validators

import "testing"

func TestValidateSetUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		req       SetUserRequest
		wantField string
		wantPhone string
	}{
		{name: "valid", req: SetUserRequest{ID: " u-1 ", Phone: "99900 01111"}, wantPhone: "+919990001111"},
		{name: "international", req: SetUserRequest{ID: "u-1", Phone: "+44 20 7946 0958"}, wantPhone: "+442079460958"},
		{name: "missing id", req: SetUserRequest{ID: "  "}, wantField: "ID"},
		{name: "bad phone", req: SetUserRequest{ID: "u-1", Phone: "12"}, wantField: "Phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := tt.req
			errs := ValidateSetUser(&req, "+91")
			if tt.wantField == "" {
				if len(errs) != 0 {
					t.Fatalf("unexpected errors: %v", errs)
				}
				if req.Phone != tt.wantPhone {
					t.Errorf("phone = %q, want %q", req.Phone, tt.wantPhone)
				}
				if req.ID != "u-1" {
					t.Errorf("id = %q, want trimmed", req.ID)
				}
				return
			}
			if _, ok := errs.Map()[tt.wantField]; !ok {
				t.Fatalf("errors %v missing field %s", errs, tt.wantField)
			}
		})
	}
}

func TestValidateCodeWord(t *testing.T) {
	t.Parallel()

	ok := CodeWordRequest{CodeWord: "  bachao  "}
	if errs := ValidateCodeWord(&ok); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if ok.CodeWord != "bachao" {
		t.Errorf("code word = %q, want trimmed", ok.CodeWord)
	}

	empty := CodeWordRequest{}
	if errs := ValidateCodeWord(&empty); len(errs) != 0 {
		t.Fatalf("empty code word should clear, got %v", errs)
	}

	bad := CodeWordRequest{CodeWord: "!!!"}
	errs := ValidateCodeWord(&bad)
	if len(errs) != 1 || errs[0].Tag != "trigger_phrase" {
		t.Fatalf("errors = %v, want one trigger_phrase error", errs)
	}
}
