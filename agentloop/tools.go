package agentloop

import "github.com/neo050/Office-Automation-Law-bot/provider"

// Closed set of tool names the dispatcher accepts. Anything else comes back
// as unknown_tool regardless of what the model invents.
const (
	toolLookupClient   = "lookupClient"
	toolCreateFolder   = "createFolder"
	toolSaveMedia      = "saveMedia"
	toolSendWhatsApp   = "sendWhatsApp"
	toolSaveChatLog    = "saveChatLog"
	toolSaveChatBundle = "saveChatBundleUpdate"
)

func toolDefs() []provider.ToolDef {
	clientParams := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":       map[string]any{"type": "string", "description": "national id number"},
			"fullName": map[string]any{"type": "string", "description": "client full name, first and last"},
			"phone":    map[string]any{"type": "string", "description": "contact phone in international form"},
		},
		"required": []string{"id", "fullName", "phone"},
	}

	return []provider.ToolDef{
		{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        toolLookupClient,
				Description: "Look the client up in the Clients registry by national id, creating the row when absent.",
				Parameters:  clientParams,
			},
		},
		{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        toolCreateFolder,
				Description: "Ensure the client's Drive document folder exists and record it in the registry.",
				Parameters:  clientParams,
			},
		},
		{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        toolSaveMedia,
				Description: "File the next uploaded document into the client's Drive folder.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"folderId":  map[string]any{"type": "string", "description": "Drive folder id"},
						"mediaId":   map[string]any{"type": "string", "description": "WhatsApp media id; omit to take the oldest queued upload"},
						"mediaType": map[string]any{"type": "string", "enum": []string{"image", "audio", "video", "document", "sticker"}},
					},
					"required": []string{"folderId"},
				},
			},
		},
		{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        toolSendWhatsApp,
				Description: "Send a WhatsApp text message to the client.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text": map[string]any{"type": "string"},
					},
					"required": []string{"text"},
				},
			},
		},
		{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        toolSaveChatLog,
				Description: "Archive the conversation log and summary into the client's Drive folder.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"folderId": map[string]any{"type": "string"},
						"raw":      map[string]any{"type": "string", "description": "transcript in [user]/[bot] line format"},
						"summary":  map[string]any{"type": "string"},
					},
					"required": []string{"folderId", "raw"},
				},
			},
		},
	}
}
