package schema

import "testing"

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"sales_data", "sales_data"},
		{"SalesData2024", "SalesData2024"},
		{"users; DROP TABLE x--", "usersDROPTABLEx"},
		{"col`name", "colname"},
		{"a b\tc", "abc"},
		{"émission", "mission"},
		{"; --", ""},
	}
	for _, c := range cases {
		if got := Sanitize(c.in).String(); got != c.want {
			t.Errorf("Sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsClean(t *testing.T) {
	if !IsClean("sales_data") {
		t.Error("Expected sales_data to be clean")
	}
	if IsClean("sales data") {
		t.Error("Expected 'sales data' to be dirty")
	}
	if IsClean("") {
		t.Error("Expected empty string to be dirty")
	}
	if IsClean("x;y") {
		t.Error("Expected 'x;y' to be dirty")
	}
}

func TestQuoted(t *testing.T) {
	if got := Sanitize("sales").Quoted(); got != "`sales`" {
		t.Errorf("Quoted() = %q, want %q", got, "`sales`")
	}
}

func TestIsSystemColumn(t *testing.T) {
	for _, name := range []string{"id", "created_at", "created_by", "updated_at", "updated_by"} {
		if !IsSystemColumn(name) {
			t.Errorf("Expected %q to be a system column", name)
		}
	}
	if IsSystemColumn("amount") {
		t.Error("Expected amount not to be a system column")
	}
}
