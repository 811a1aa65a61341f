package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/savaki/secrets-rotator/internal/dao/historydao"
	"github.com/savaki/secrets-rotator/internal/services"
)

func ProvideHistoryDAO(env string, config *services.Config, client *dynamodb.Client) *historydao.DAO {
	tableName := config.HistoryTable
	if tableName == "" {
		tableName = historydao.TableName(env)
	}
	return historydao.New(client, tableName)
}
