package logger

import "testing"

func TestOperationFromSQL(t *testing.T) {
	cases := []struct {
		sql  string
		want string
	}{
		{sql: "SELECT * FROM payments", want: "SELECT"},
		{sql: "  insert into webhook_events (id) values (1)", want: "INSERT"},
		{sql: "WITH x AS (SELECT 1) UPDATE users SET is_paid = 1", want: "SELECT"},
		{sql: "(DELETE FROM subscriptions)", want: "DELETE"},
		{sql: "", want: "UNKNOWN"},
		{sql: "VACUUM", want: "UNKNOWN"},
	}
	for _, tc := range cases {
		if got := operationFromSQL(tc.sql); got != tc.want {
			t.Fatalf("operationFromSQL(%q) = %s, want %s", tc.sql, got, tc.want)
		}
	}
}
