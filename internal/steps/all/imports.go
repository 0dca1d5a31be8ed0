// Package all registers every step kind.
package all

import (
	_ "dbmigrate/internal/steps/eav"
	_ "dbmigrate/internal/steps/justcopy"
	_ "dbmigrate/internal/steps/urlrewrite"
)
