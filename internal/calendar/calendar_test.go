package calendar

import "testing"

func TestWeekdayIsTradingDay(t *testing.T) {
	c := NewUSEquities()
	open, err := c.IsTradingDay("2024-06-17") // Monday
	if err != nil {
		t.Fatal(err)
	}
	if !open {
		t.Fatal("regular Monday should be a trading day")
	}
}

func TestWeekendIsClosed(t *testing.T) {
	c := NewUSEquities()
	for _, date := range []string{"2024-06-15", "2024-06-16"} {
		open, err := c.IsTradingDay(date)
		if err != nil {
			t.Fatal(err)
		}
		if open {
			t.Fatalf("%s is a weekend", date)
		}
	}
}

func TestHolidayIsClosed(t *testing.T) {
	c := NewUSEquities()
	open, err := c.IsTradingDay("2024-07-04")
	if err != nil {
		t.Fatal(err)
	}
	if open {
		t.Fatal("Independence Day should be closed")
	}
}

func TestInvalidDateErrors(t *testing.T) {
	c := NewUSEquities()
	if _, err := c.IsTradingDay("06/17/2024"); err == nil {
		t.Fatal("expected an error for a malformed date")
	}
}
