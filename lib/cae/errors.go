package cae

//APIerror is the JSON error shape the API speaks.
type APIerror struct {
	Reason string `json:"error"`
}

func (e APIerror) Error() string {
	return e.Reason
}

//Session error codes surfaced to the UI. No operation retries automatically;
//the user recovers manually.
const (
	FetchFailed  = "FETCH_FAILED"
	NotFound     = "NOT_FOUND"
	DeleteFailed = "DELETE_FAILED"
	SendRejected = "SEND_REJECTED"
)

//SessionError is a terminal failure of a session operation, with a
//human-readable message alongside the machine code.
type SessionError struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

func (e *SessionError) Error() string {
	return e.Text
}

var (
	//ENOTFOUND = this chat doesn't exist or you don't have access to it.
	ENOTFOUND = SessionError{Code: NotFound, Text: "This chat doesn't exist or you don't have access to it"}
	//EFETCH = generic network/parse failure on the initial load.
	EFETCH = SessionError{Code: FetchFailed, Text: "Failed to fetch messages"}
	//EDELETE = clearing the conversation failed.
	EDELETE = SessionError{Code: DeleteFailed, Text: "Failed to delete chat"}
	//ESENDCLOSED = the channel is not open; the message was not queued.
	ESENDCLOSED = SessionError{Code: SendRejected, Text: "Not connected; message not sent"}
)
