package usecase

import (
	"strconv"
	"strings"
)

const (
	commentPrefix = "CPY:"
	// ReverseComment marks the order that undoes an accidental open.
	ReverseComment = "ERR_FIX"
)

// OpenComment tags an opening order with its master ticket, namespaced by
// copy session when there is one.
func OpenComment(sessionID, masterTicket int64) string {
	if sessionID == 0 {
		return CloseComment(masterTicket)
	}
	return commentPrefix + "S" + strconv.FormatInt(sessionID, 10) + ":" + strconv.FormatInt(masterTicket, 10)
}

func CloseComment(masterTicket int64) string {
	return commentPrefix + strconv.FormatInt(masterTicket, 10)
}

// MatchesMasterTicket reports whether a broker comment was written for
// masterTicket: it must carry the CPY: prefix and end in the ticket.
func MatchesMasterTicket(comment string, masterTicket int64) bool {
	if !strings.HasPrefix(comment, commentPrefix) {
		return false
	}
	mt := strconv.FormatInt(masterTicket, 10)
	return comment == commentPrefix+mt || strings.HasSuffix(comment, ":"+mt)
}
