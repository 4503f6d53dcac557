package rest

import "github.com/gin-gonic/gin"

// Handlers bundles the handlers mounted by Register.
type Handlers struct {
	Boards  *BoardHandler
	Tickets *TicketHandler
	Admin   *AdminHandler
}

// Register mounts the player routes behind auth and the admin routes behind
// adminGuards on api.
func Register(api *gin.RouterGroup, h Handlers, auth gin.HandlerFunc, adminGuards ...gin.HandlerFunc) {
	boardsG := api.Group("/boards", auth)
	boardsG.GET("", h.Boards.List)
	boardsG.GET("/:id", h.Boards.Open)
	boardsG.POST("/:id/take", h.Boards.Take)

	ticketsG := api.Group("/tickets", auth)
	ticketsG.GET("", h.Tickets.List)
	ticketsG.GET("/:id", h.Tickets.Get)
	ticketsG.POST("/:id/turn-in", h.Tickets.TurnIn)
	ticketsG.DELETE("/:id", h.Tickets.Discard)

	adminG := api.Group("/admin", adminGuards...)
	adminG.GET("/metrics", h.Admin.Metrics)
	adminG.GET("/scheduler", h.Admin.ListSchedulerTasks)
	adminG.POST("/scheduler/:name/run", h.Admin.RunSchedulerTask)
	adminG.POST("/characters", h.Admin.CreateCharacter)
	adminG.POST("/characters/:id/token", h.Admin.IssueToken)
	adminG.POST("/players/:id/clear", h.Admin.ClearPlayer)
	adminG.POST("/players/:id/tickets", h.Admin.IssueTicket)
	adminG.POST("/players/:id/actions", h.Admin.TrackAction)
	adminG.POST("/boards/refresh", h.Admin.RefreshAllBoards)
	adminG.POST("/boards/:id/refresh", h.Admin.RefreshBoard)
	adminG.POST("/boards/:id/regenerate", h.Admin.RegenerateBoard)
	adminG.POST("/catalog/reload", h.Admin.ReloadCatalog)
	adminG.POST("/generator/:class/update", h.Admin.ForceUpdateClass)
	adminG.GET("/accumulation", h.Admin.AccumulationStats)
	adminG.DELETE("/accumulation/:class", h.Admin.ClearAccumulation)
	adminG.DELETE("/accumulation/:class/:quest_id", h.Admin.RemovePendingQuest)
}
