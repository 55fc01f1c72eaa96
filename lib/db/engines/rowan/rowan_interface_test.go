package rowan

import (
	"testing"

	"github.com/project-sunbird/sunbird-lock-service/lib/db"
	dbtesting "github.com/project-sunbird/sunbird-lock-service/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "RowanDB", func() db.KVDB {
		return NewRowanDB(nil)
	})
}
