package memstore

import (
	"testing"

	"github.com/Roizz-soul/Solublog/internal/store"
	"github.com/Roizz-soul/Solublog/internal/store/storetest"
)

func TestBackendContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Backend { return New() })
}
