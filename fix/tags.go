package fix

// FIX 4.4 tag 号。
const (
	TagBeginSeqNo      = 7
	TagBeginString     = 8
	TagBodyLength      = 9
	TagCheckSum        = 10
	TagClOrdID         = 11
	TagCumQty          = 14
	TagEndSeqNo        = 16
	TagExecID          = 17
	TagHandlInst       = 21
	TagLastPx          = 31
	TagLastQty         = 32
	TagMsgSeqNum       = 34
	TagMsgType         = 35
	TagNewSeqNo        = 36
	TagOrderID         = 37
	TagOrderQty        = 38
	TagOrdStatus       = 39
	TagOrdType         = 40
	TagOrigClOrdID     = 41
	TagPossDupFlag     = 43
	TagPrice           = 44
	TagRefSeqNum       = 45
	TagSenderCompID    = 49
	TagSendingTime     = 52
	TagSide            = 54
	TagSymbol          = 55
	TagTargetCompID    = 56
	TagText            = 58
	TagTransactTime    = 60
	TagPossResend      = 97
	TagEncryptMethod   = 98
	TagHeartBtInt      = 108
	TagTestReqID       = 112
	TagOrigSendingTime = 122
	TagGapFillFlag     = 123
	TagResetSeqNumFlag = 141
	TagExecType        = 150
	TagLeavesQty       = 151
	TagUsername        = 553
	TagPassword        = 554
)

// MsgType 取值。
const (
	MsgTypeHeartbeat          = "0"
	MsgTypeTestRequest        = "1"
	MsgTypeResendRequest      = "2"
	MsgTypeReject             = "3"
	MsgTypeSequenceReset      = "4"
	MsgTypeLogout             = "5"
	MsgTypeExecutionReport    = "8"
	MsgTypeOrderCancelReject  = "9"
	MsgTypeLogon              = "A"
	MsgTypeNewOrderSingle     = "D"
	MsgTypeOrderCancelRequest = "F"
)

// IsAdmin 判断是否为会话层消息。
func IsAdmin(msgType string) bool {
	switch msgType {
	case MsgTypeHeartbeat, MsgTypeTestRequest, MsgTypeResendRequest, MsgTypeReject,
		MsgTypeSequenceReset, MsgTypeLogout, MsgTypeLogon:
		return true
	}
	return false
}

// HandlInstAutomatedPrivate 自动执行、无经纪人干预。
const HandlInstAutomatedPrivate = "1"

// TimeFormat UTCTimestamp 秒精度格式。
const TimeFormat = "20060102-15:04:05"
