package database

import "testing"

func TestDSN(t *testing.T) {
	c := Config{Driver: DriverMySQL, User: "bank", Password: "pw", Host: "db", Port: 3306, DBName: "ledger"}
	want := "bank:pw@tcp(db:3306)/ledger?charset=utf8mb4&parseTime=True&loc=Local"
	if got := c.DSN(); got != want {
		t.Fatalf("DSN = %s, want %s", got, want)
	}
	s := Config{Driver: DriverSQLite, SQLitePath: "file:bank.db"}
	if got := s.DSN(); got != "file:bank.db" {
		t.Fatalf("sqlite DSN = %s", got)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := NewClient(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := NewClient(Config{Driver: DriverSQLite}); err == nil {
		t.Fatal("expected error for missing sqlite path")
	}
}
