package nqn

import "testing"

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		nqn     string
		wantErr bool
	}{
		{"empty", "", true},
		{"discovery nqn", DiscoveryNQN, false},
		{"well formed host nqn", "nqn.2014-08.org.nvmexpress:uuid:12345678-1234-1234-1234-123456789abc", false},
		{"well formed subsystem nqn", "nqn.test.sub1", false},
		{"conventional subsystem nqn", "nqn.2020-01.test.sub1", false},
		{"command injection semicolon", "nqn.2020-01.test.sub1;rm -rf /", true},
		{"too long", "nqn.2020-01." + string(make([]byte, 300)), true},
		{"space", "nqn.2020-01.test sub1", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.nqn)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tc.nqn, err, tc.wantErr)
			}
		})
	}
}
