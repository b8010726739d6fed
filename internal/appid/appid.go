// Package appid holds the ledgersweep application identity.
package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"
)

// Default is the identity compiled into the binary.
var Default = appidentity.Identity{
	BinaryName:  "ledgersweep",
	Vendor:      "ledgersweep",
	ConfigName:  "ledgersweep",
	EnvPrefix:   "LEDGERSWEEP_",
	Description: "Throttled bulk deletion of Bills and BillPayments in an accounting service",
}

// Get returns a copy of the application identity.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	identity := Default
	return &identity, nil
}
