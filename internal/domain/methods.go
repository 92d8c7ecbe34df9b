package domain

// Method names the client calls on the app-server.
const (
	MethodInitialize                     = "initialize"
	MethodInitialized                    = "initialized"
	MethodThreadStart                    = "thread/start"
	MethodThreadResume                   = "thread/resume"
	MethodThreadFork                     = "thread/fork"
	MethodThreadList                     = "thread/list"
	MethodThreadLoadedList               = "thread/loaded/list"
	MethodThreadRead                     = "thread/read"
	MethodThreadArchive                  = "thread/archive"
	MethodThreadNameSet                  = "thread/name/set"
	MethodThreadUnarchive                = "thread/unarchive"
	MethodThreadCompactStart             = "thread/compact/start"
	MethodThreadBackgroundTerminalsClean = "thread/backgroundTerminals/clean"
	MethodThreadRollback                 = "thread/rollback"
	MethodTurnStart                      = "turn/start"
	MethodTurnSteer                      = "turn/steer"
	MethodTurnInterrupt                  = "turn/interrupt"
	MethodReviewStart                    = "review/start"
	MethodCommandExec                    = "command/exec"
	MethodModelList                      = "model/list"
	MethodExperimentalFeatureList        = "experimentalFeature/list"
	MethodCollaborationModeList          = "collaborationMode/list"
	MethodSkillsList                     = "skills/list"
	MethodSkillsRemoteList               = "skills/remote/list"
	MethodSkillsRemoteExport             = "skills/remote/export"
	MethodAppList                        = "app/list"
	MethodSkillsConfigWrite              = "skills/config/write"
	MethodMCPServerOAuthLogin            = "mcpServer/oauth/login"
	MethodToolRequestUserInput           = "tool/requestUserInput"
	MethodConfigMCPServerReload          = "config/mcpServer/reload"
	MethodMCPServerStatusList            = "mcpServerStatus/list"
	MethodWindowsSandboxSetupStart       = "windowsSandbox/setupStart"
	MethodFeedbackUpload                 = "feedback/upload"
	MethodConfigRead                     = "config/read"
	MethodConfigValueWrite               = "config/value/write"
	MethodConfigBatchWrite               = "config/batchWrite"
	MethodConfigRequirementsRead         = "configRequirements/read"
	MethodAccountRead                    = "account/read"
	MethodAccountLoginStart              = "account/login/start"
	MethodAccountLoginCancel             = "account/login/cancel"
	MethodAccountLogout                  = "account/logout"
	MethodAccountRateLimitsRead          = "account/rateLimits/read"
)

// ClientMethods lists every client-to-server method in catalogue order.
var ClientMethods = []string{
	MethodInitialize,
	MethodThreadStart,
	MethodThreadResume,
	MethodThreadFork,
	MethodThreadList,
	MethodThreadLoadedList,
	MethodThreadRead,
	MethodThreadArchive,
	MethodThreadNameSet,
	MethodThreadUnarchive,
	MethodThreadCompactStart,
	MethodThreadBackgroundTerminalsClean,
	MethodThreadRollback,
	MethodTurnStart,
	MethodTurnSteer,
	MethodTurnInterrupt,
	MethodReviewStart,
	MethodCommandExec,
	MethodModelList,
	MethodExperimentalFeatureList,
	MethodCollaborationModeList,
	MethodSkillsList,
	MethodSkillsRemoteList,
	MethodSkillsRemoteExport,
	MethodAppList,
	MethodSkillsConfigWrite,
	MethodMCPServerOAuthLogin,
	MethodToolRequestUserInput,
	MethodConfigMCPServerReload,
	MethodMCPServerStatusList,
	MethodWindowsSandboxSetupStart,
	MethodFeedbackUpload,
	MethodConfigRead,
	MethodConfigValueWrite,
	MethodConfigBatchWrite,
	MethodConfigRequirementsRead,
	MethodAccountRead,
	MethodAccountLoginStart,
	MethodAccountLoginCancel,
	MethodAccountLogout,
	MethodAccountRateLimitsRead,
}

// NotificationMethods lists the server-to-client notifications the client
// knows about. Unknown notifications are still delivered.
var NotificationMethods = []string{
	"thread/started",
	"thread/archived",
	"thread/unarchived",
	"thread/status/changed",
	"thread/tokenUsage/updated",
	"turn/started",
	"turn/completed",
	"turn/diff/updated",
	"turn/plan/updated",
	"model/rerouted",
	"item/started",
	"item/completed",
	"item/agentMessage/delta",
	"item/plan/delta",
	"item/reasoning/summaryTextDelta",
	"item/reasoning/summaryPartAdded",
	"item/reasoning/textDelta",
	"item/commandExecution/outputDelta",
	"item/fileChange/outputDelta",
	"error",
	"app/list/updated",
	"mcpServer/oauthLogin/completed",
	"account/login/completed",
	"account/updated",
	"account/rateLimits/updated",
	"fuzzyFileSearch/sessionUpdated",
	"fuzzyFileSearch/sessionCompleted",
	"windowsSandbox/setupCompleted",
	"codex/event/session_configured",
}

// Server-to-client request methods.
const (
	MethodCommandExecutionRequestApproval = "item/commandExecution/requestApproval"
	MethodFileChangeRequestApproval       = "item/fileChange/requestApproval"
	MethodToolCall                        = "item/tool/call"
)

// ServerRequestMethods lists the peer requests the client knows about.
var ServerRequestMethods = []string{
	MethodCommandExecutionRequestApproval,
	MethodFileChangeRequestApproval,
	MethodToolCall,
}

var (
	knownClientMethods       = toSet(ClientMethods)
	knownNotificationMethods = toSet(NotificationMethods)
	knownServerRequests      = toSet(ServerRequestMethods)
)

// KnownClientMethod reports whether method is in the client catalogue.
func KnownClientMethod(method string) bool {
	_, ok := knownClientMethods[method]
	return ok
}

// KnownNotification reports whether method is a catalogued notification.
func KnownNotification(method string) bool {
	_, ok := knownNotificationMethods[method]
	return ok
}

// KnownServerRequest reports whether method is a catalogued peer request.
func KnownServerRequest(method string) bool {
	_, ok := knownServerRequests[method]
	return ok
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
