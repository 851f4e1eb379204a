package app

import "errors"

const (
	MsgConvertFailed       = "Failed to process file. Make sure it's a valid format and readable."
	MsgRefineFailed        = "Failed to refine form. Please try again."
	MsgAssistantFailed     = "Sorry, I encountered an error. Please check your connection and try again."
	MsgDocChatFailed       = "I encountered an error while processing your document. Please try again or check the file format."
	MsgSearchFailed        = "Failed to perform search. Please try again later."
	MsgSearchConvertFailed = "Failed to convert search result into a form. Please try another link."
	MsgDraftFailed         = "Failed to synthesize and download the document."
	MsgDriveSaveFailed     = "Failed to save to Drive. Ensure Client ID is configured and you have granted permissions."
	MsgDriveImportFailed   = "Failed to import the file from Drive."
)

// Notice is a failure of an external call, reduced to the one message the
// user sees. The cause stays available through Unwrap.
type Notice struct {
	Message string
	Err     error
}

func (n *Notice) Error() string {
	if n.Err == nil {
		return n.Message
	}
	return n.Message + ": " + n.Err.Error()
}

func (n *Notice) Unwrap() error {
	return n.Err
}

// AsNotice returns the notice carried by err, if any.
func AsNotice(err error) (*Notice, bool) {
	var n *Notice
	if errors.As(err, &n) {
		return n, true
	}
	return nil, false
}
