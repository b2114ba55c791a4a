package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/tinyauth/microauth/internal/microauth/audit"
	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/internal/model"
)

// adminService is the service name management actions are qualified with.
const adminService = "microauth"

// internalAuthorize checks that the caller may perform a management action.
// The check routes through the client facade, so proxy deployments forward
// it upstream like any other authorization. Action arrives unqualified
// ("CreateUser"); resource is a full ARN.
func internalAuthorize(c *gin.Context, client biz.Client, event *audit.Event, action, resource string) bool {
	qualified := adminService + ":" + action
	event.Set("request.actions", []string{qualified})
	event.Set("request.resources", []string{resource})

	headers := []model.HeaderPair{}
	if v := c.GetHeader("Authorization"); v != "" {
		headers = append(headers, model.HeaderPair{"Authorization", v})
	}
	if v := c.GetHeader("Cookie"); v != "" {
		headers = append(headers, model.HeaderPair{"Cookie", v})
	}

	outcome, err := client.AuthorizeByToken(c.Request.Context(), &biz.ClientRequest{
		OuterAuthorization: c.GetHeader("Authorization"),
		Service:            adminService,
		Authorize: &model.AuthorizeRequest{
			Region:  "global",
			Permit:  model.PermitMap{qualified: {resource}},
			Headers: headers,
		},
	})
	if err != nil {
		logger.Errorf("management authorization failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"errors": gin.H{"internal": "server error"}})
		return false
	}
	if outcome.OuterError != "" {
		failure := map[string]string{"authorization": string(outcome.OuterError)}
		event.Set("errors", failure)
		writeOuterError(c, outcome.OuterError)
		return false
	}

	result := outcome.Result
	if !result.Authorized {
		code := biz.Code(result.ErrorCode)
		if code == "" {
			code = biz.CodeNotPermitted
		}
		failure := map[string]string{"authorization": string(code)}
		event.Set("errors", failure)
		c.JSON(code.Status(), gin.H{"errors": failure})
		return false
	}

	if result.Identity != "" {
		event.Set("request.identity", result.Identity)
	}
	return true
}

// writeStoreError maps a persistence failure to an HTTP response.
func writeStoreError(c *gin.Context, event *audit.Event, err error) {
	if event != nil {
		event.Set("errors", map[string]string{"internal": err.Error()})
	}
	logger.Errorf("store operation failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"errors": gin.H{"internal": "server error"}})
}

// writeNotFound reports a missing record.
func writeNotFound(c *gin.Context, event *audit.Event, kind string) {
	failure := map[string]string{kind: "No such " + kind}
	if event != nil {
		event.Set("errors", failure)
	}
	c.JSON(http.StatusNotFound, gin.H{"errors": failure})
}
