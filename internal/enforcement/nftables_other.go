//go:build !linux

package enforcement

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// NFTables is only available on Linux.
type NFTables struct{}

// NewNFTables always fails outside Linux.
func NewNFTables(tableName, chainName string, log logrus.FieldLogger) (*NFTables, error) {
	return nil, errors.New("nftables enforcement requires linux")
}

func (n *NFTables) Block(context.Context, string) error {
	return errors.New("nftables enforcement requires linux")
}
