package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	RegisterHandler(LogInfoTask.TaskID(), LogInfoTask.HandleExecution)
	RegisterHandler(SendPaymentNotificationTask.TaskID(), SendPaymentNotificationTask.HandleExecution)
	RegisterHandler(ExpireStaleTransactionsTask.TaskID(), ExpireStaleTransactionsTask.HandleExecution)
}
