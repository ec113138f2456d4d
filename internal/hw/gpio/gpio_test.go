package gpio

import "testing"

func TestMockDriver_ReadReturnsLastWrite(t *testing.T) {
	d := NewMockDriver()
	if err := d.SetupPin(4, Output); err != nil {
		t.Fatalf("SetupPin: %v", err)
	}

	if l, _ := d.ReadPin(4); l != Low {
		t.Errorf("initial level = %v, want LOW", l)
	}
	_ = d.WritePin(4, High)
	if l, _ := d.ReadPin(4); l != High {
		t.Errorf("level after write = %v, want HIGH", l)
	}
}

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(true): %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Errorf("NewDriver(true) = %T, want *MockDriver", d)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestLevel_String(t *testing.T) {
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Errorf("unexpected level names: %s %s", High, Low)
	}
}
