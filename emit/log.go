package emit

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("flatprog.emit")
