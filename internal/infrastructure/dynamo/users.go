package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-wallet-auth/internal/domain"
)

// ErrIntegrity reports stored data that violates a table invariant, such as
// two users sharing one wallet. It is never a normal outcome.
var ErrIntegrity = errors.New("data integrity violation")

// API is the subset of the DynamoDB client used by the repositories.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// UserRepo provides typed DynamoDB operations for the users table.
type UserRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewUserRepo(client API, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName, now: time.Now}
}

// Create stores u together with the guard item reserving its wallet. Both
// writes are conditional, so an existing user id or a live reservation of
// the wallet yields ErrConflict. A guard whose expiry has passed belongs to a
// user that TTL already removed (or is about to), and is taken over.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	var expiry interface{}
	if u.ExpiryTime != nil {
		expiry = *u.ExpiryTime
	}
	guard, err := r.guardPut(u.WalletID, u.UserID, expiry, false)
	if err != nil {
		return err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(" + attrUserID + ")"),
			}},
			{Put: guard},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && (conditionFailed(tce, 0) || conditionFailed(tce, 1)) {
			return fmt.Errorf("wallet %s: %w", u.WalletID, domain.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// guardPut builds the conditional write of the wallet reservation. The
// reservation may replace a missing or expired guard, and when ownerMayHold
// is set also one already held by ownerID.
func (r *UserRepo) guardPut(walletID, ownerID string, expiry interface{}, ownerMayHold bool) (*types.Put, error) {
	item := map[string]types.AttributeValue{
		attrUserID:      &types.AttributeValueMemberS{Value: walletGuardPrefix + walletID},
		attrOwnerUserID: &types.AttributeValueMemberS{Value: ownerID},
	}
	if expiry != nil {
		av, err := attributevalue.Marshal(expiry)
		if err != nil {
			return nil, fmt.Errorf("marshal guard expiry: %w", err)
		}
		item[attrExpiryTime] = av
	}
	cond := "attribute_not_exists(#pk) OR #exp < :now"
	names := map[string]string{"#pk": attrUserID, "#exp": attrExpiryTime}
	values := map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(r.now().Unix(), 10)},
	}
	if ownerMayHold {
		cond = "attribute_not_exists(#pk) OR #owner = :owner OR #exp < :now"
		names["#owner"] = attrOwnerUserID
		values[":owner"] = &types.AttributeValueMemberS{Value: ownerID}
	}
	return &types.Put{
		TableName:                 aws.String(r.tableName),
		Item:                      item,
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}, nil
}

// conditionFailed reports whether the i-th item of a canceled transaction
// failed its condition, as opposed to a conflict or throttling cancellation.
func conditionFailed(tce *types.TransactionCanceledException, i int) bool {
	return i < len(tce.CancellationReasons) &&
		aws.ToString(tce.CancellationReasons[i].Code) == "ConditionalCheckFailed"
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(attrUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// GetByWalletID resolves a wallet through the wallet_id GSI. More than one
// match is reported as ErrIntegrity rather than picking one.
func (r *UserRepo) GetByWalletID(ctx context.Context, walletID string) (*domain.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexWalletID),
		KeyConditionExpression:    aws.String("#w = :w"),
		ExpressionAttributeNames:  map[string]string{"#w": attrWalletID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":w": &types.AttributeValueMemberS{Value: walletID}},
		Limit:                     aws.Int32(2),
	})
	if err != nil {
		return nil, fmt.Errorf("query users by wallet: %w", err)
	}
	switch len(out.Items) {
	case 0:
		return nil, fmt.Errorf("wallet %s: %w", walletID, domain.ErrNotFound)
	case 1:
	default:
		return nil, fmt.Errorf("wallet %s matches %d users: %w", walletID, len(out.Items), ErrIntegrity)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// Update applies updates to an existing user and returns the new item.
func (r *UserRepo) Update(ctx context.Context, userID string, updates map[string]interface{}) (*domain.User, error) {
	return r.update(ctx, userID, "", updates)
}

// UpdateIfNonce applies updates only while the stored nonce equals nonce.
// A lost race yields domain.ErrConflict.
func (r *UserRepo) UpdateIfNonce(ctx context.Context, userID, nonce string, updates map[string]interface{}) (*domain.User, error) {
	if nonce == "" {
		return nil, fmt.Errorf("empty expected nonce: %w", domain.ErrBadRequest)
	}
	return r.update(ctx, userID, nonce, updates)
}

func (r *UserRepo) update(ctx context.Context, userID, expectedNonce string, updates map[string]interface{}) (*domain.User, error) {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return nil, err
	}
	cond := "attribute_exists(#pk)"
	ue.Names["#pk"] = attrUserID
	if expectedNonce != "" {
		cond += " AND #cn = :cn"
		ue.Names["#cn"] = attrNonce
		ue.Values[":cn"] = &types.AttributeValueMemberS{Value: expectedNonce}
	}
	var values map[string]types.AttributeValue
	if len(ue.Values) > 0 {
		values = ue.Values
	}
	if expiry, ok := updates[attrExpiryTime]; ok {
		return r.updateWithGuard(ctx, userID, expectedNonce, &types.Update{
			TableName:                 aws.String(r.tableName),
			Key:                       strKey(attrUserID, userID),
			UpdateExpression:          aws.String(ue.Expr),
			ConditionExpression:       aws.String(cond),
			ExpressionAttributeNames:  ue.Names,
			ExpressionAttributeValues: values,
		}, expiry)
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(attrUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, userConditionError(userID, expectedNonce)
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Attributes, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// updateWithGuard commits a user update that changes expiry_time together
// with a rewrite of the wallet guard, so both items always expire together.
// A guard held by a different live owner is reported as ErrIntegrity.
func (r *UserRepo) updateWithGuard(ctx context.Context, userID, expectedNonce string, update *types.Update, expiry interface{}) (*domain.User, error) {
	cur, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	guard, err := r.guardPut(cur.WalletID, userID, expiry, true)
	if err != nil {
		return nil, err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{{Update: update}, {Put: guard}},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			switch {
			case conditionFailed(tce, 0):
				return nil, userConditionError(userID, expectedNonce)
			case conditionFailed(tce, 1):
				return nil, fmt.Errorf("wallet %s reserved by another user: %w", cur.WalletID, ErrIntegrity)
			}
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return r.Get(ctx, userID)
}

func userConditionError(userID, expectedNonce string) error {
	if expectedNonce != "" {
		return fmt.Errorf("user %s nonce changed: %w", userID, domain.ErrConflict)
	}
	return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
}
