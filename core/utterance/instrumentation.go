package utterance

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-access/core/utterance"

var logger = otelslog.NewLogger(scopeName)
