package types

import "testing"

func TestMoneyString(t *testing.T) {
	cases := []struct {
		m    Money
		want string
	}{
		{NewMoney(1250, ""), "12.50 EUR"},
		{NewMoney(5, "USD"), "0.05 USD"},
		{NewMoney(-199, "EUR"), "-1.99 EUR"},
	}
	for _, tc := range cases {
		if got := tc.m.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestPointValid(t *testing.T) {
	if !(Point{Lat: 47.37, Lng: 8.54}).Valid() {
		t.Fatal("expected valid point")
	}
	if (Point{Lat: 91, Lng: 0}).Valid() {
		t.Fatal("latitude 91 must be invalid")
	}
	if (Point{Lat: 0, Lng: -181}).Valid() {
		t.Fatal("longitude -181 must be invalid")
	}
}

func TestNewIDUnique(t *testing.T) {
	a, b := NewID(), NewID()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a, b)
	}
}
